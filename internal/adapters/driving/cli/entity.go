package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/apache/stanbol-sub040/internal/core/domain"
)

var getCmd = &cobra.Command{
	Use:   "get [entity-id]",
	Short: "Show an entity",
	Long: `Prints the stored representation of an entity as JSON. Depending on
the cache strategy an entity missing locally is fetched upstream.`,
	Args: cobra.ExactArgs(1),
	RunE: runGet,
}

var putCmd = &cobra.Command{
	Use:   "put [file...]",
	Short: "Store entities from JSON files",
	Long: `Stores the entity representations read from the given JSON files, or
from standard input when no file (or "-") is given. A file holds a single
representation or an array of them.`,
	RunE: runPut,
}

var deleteCmd = &cobra.Command{
	Use:   "delete [entity-id...]",
	Short: "Remove entities",
	Long:  `Removes entities by id. Removing an absent entity is not an error.`,
	RunE:  runDelete,
}

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Print the number of stored entities",
	Args:  cobra.NoArgs,
	RunE:  runCount,
}

// Flags for the entity commands.
var (
	putCreate bool
	putUpdate bool
	deleteAll bool
)

func init() {
	putCmd.Flags().BoolVar(&putCreate, "create", false, "fail if an entity already exists")
	putCmd.Flags().BoolVar(&putUpdate, "update", false, "fail if an entity does not exist")
	putCmd.MarkFlagsMutuallyExclusive("create", "update")
	deleteCmd.Flags().BoolVar(&deleteAll, "all", false, "remove every entity")

	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(countCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	s, err := loadServices(ctx)
	if err != nil {
		return err
	}

	rep, err := s.Yard.Get(ctx, args[0])
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("entity not found: %s", args[0])
		}
		return fmt.Errorf("failed to get entity: %w", err)
	}
	return printJSON(cmd, rep)
}

func runPut(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	s, err := loadServices(ctx)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		args = []string{"-"}
	}
	var reps []*domain.Representation
	for _, name := range args {
		read, err := readRepresentations(cmd, name)
		if err != nil {
			return err
		}
		reps = append(reps, read...)
	}

	for _, rep := range reps {
		var stored *domain.Representation
		switch {
		case putCreate:
			stored, err = s.Yard.Create(ctx, rep)
		case putUpdate:
			stored, err = s.Yard.Update(ctx, rep)
		default:
			stored, err = s.Yard.Store(ctx, rep)
		}
		if err != nil {
			return fmt.Errorf("failed to store %s: %w", rep.ID, err)
		}
		cmd.Printf("Stored %s\n", stored.ID)
	}
	return nil
}

// readRepresentations decodes one representation or an array of them.
func readRepresentations(cmd *cobra.Command, name string) ([]*domain.Representation, error) {
	var (
		data []byte
		err  error
	)
	if name == "-" {
		data, err = io.ReadAll(bufio.NewReader(cmd.InOrStdin()))
	} else {
		data, err = os.ReadFile(name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}

	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] == '[' {
		var reps []*domain.Representation
		if err := json.Unmarshal(data, &reps); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		return reps, nil
	}
	var rep domain.Representation
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return []*domain.Representation{&rep}, nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	if !deleteAll && len(args) == 0 {
		return errors.New("requires at least one entity id or --all")
	}
	ctx := commandContext(cmd)
	s, err := loadServices(ctx)
	if err != nil {
		return err
	}

	if deleteAll {
		if err := s.Yard.RemoveAll(ctx); err != nil {
			return fmt.Errorf("failed to remove entities: %w", err)
		}
		cmd.Println("All entities removed.")
		return nil
	}
	for _, id := range args {
		if err := s.Yard.Remove(ctx, id); err != nil {
			return fmt.Errorf("failed to remove %s: %w", id, err)
		}
		cmd.Printf("Removed %s\n", id)
	}
	return nil
}

func runCount(cmd *cobra.Command, _ []string) error {
	ctx := commandContext(cmd)
	s, err := loadServices(ctx)
	if err != nil {
		return err
	}

	n, err := s.Yard.Count(ctx)
	if err != nil {
		return fmt.Errorf("failed to count entities: %w", err)
	}
	cmd.Println(n)
	return nil
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
