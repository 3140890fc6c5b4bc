package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/apache/stanbol-sub040/internal/core/domain"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Change the cache strategy and level",
	Long: `Changes how the yard caches its upstream site. A change is only
accepted while the yard is empty; it is then saved to the configuration.`,
	RunE: runCacheShow,
}

var cacheStrategyCmd = &cobra.Command{
	Use:   "strategy [none|used|all]",
	Short: "Set the cache strategy",
	Args:  cobra.ExactArgs(1),
	RunE:  runCacheStrategy,
}

var cacheLevelCmd = &cobra.Command{
	Use:   "level [base|special]",
	Short: "Set the cacheing level",
	Args:  cobra.ExactArgs(1),
	RunE:  runCacheLevel,
}

func init() {
	cacheCmd.AddCommand(cacheStrategyCmd)
	cacheCmd.AddCommand(cacheLevelCmd)
	rootCmd.AddCommand(cacheCmd)
}

func runCacheShow(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)
	s, err := loadServices(ctx)
	if err != nil {
		return err
	}

	cfg := s.Yard.Config()
	cmd.Printf("Strategy: %s\n", cfg.Strategy)
	cmd.Printf("Level: %s\n", cfg.Level)
	if cfg.Upstream != "" {
		cmd.Printf("Upstream: %s\n", cfg.Upstream)
	}
	return nil
}

func runCacheStrategy(cmd *cobra.Command, args []string) error {
	strategy, err := domain.ParseCacheStrategy(args[0])
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)
	s, err := loadServices(ctx)
	if err != nil {
		return err
	}

	if err := s.Yard.SetCacheStrategy(ctx, strategy); err != nil {
		return fmt.Errorf("failed to set cache strategy: %w", err)
	}
	if err := persistOption("yard.strategy", string(strategy)); err != nil {
		return err
	}
	cmd.Printf("Cache strategy set to %s\n", strategy)
	return nil
}

func runCacheLevel(cmd *cobra.Command, args []string) error {
	level, err := domain.ParseCacheingLevel(args[0])
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)
	s, err := loadServices(ctx)
	if err != nil {
		return err
	}

	if err := s.Yard.SetCacheingLevel(ctx, level); err != nil {
		return fmt.Errorf("failed to set cacheing level: %w", err)
	}
	if err := persistOption("yard.level", string(level)); err != nil {
		return err
	}
	cmd.Printf("Cacheing level set to %s\n", level)
	return nil
}

// persistOption saves an option the yard already accepted.
func persistOption(key, value string) error {
	store, err := loadConfig()
	if err != nil {
		return err
	}
	if err := store.Set(key, value); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	return nil
}
