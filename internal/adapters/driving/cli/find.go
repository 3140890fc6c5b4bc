package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/apache/stanbol-sub040/internal/core/domain"
)

var findCmd = &cobra.Command{
	Use:   "find",
	Short: "Find entities by field constraints",
	Long: `Finds the entities matching every constraint, ordered by id.

Constraints take the form field=value. Values are written as:
  <http://ex.org/x>      reference
  "Paris"@en             text in a language ("Paris" for no language)
  Paris                  text in any language
  42, 4.2, true          integer, double, boolean
  2024-01-02T15:04:05Z   date

Examples:
  yard find --value 'http://ex.org/country=<http://ex.org/France>'
  yard find --text 'http://ex.org/name=par*' --lang en
  yard find --range 'http://ex.org/population=1000000..' --select http://ex.org/name`,
	Args: cobra.NoArgs,
	RunE: runFind,
}

// Flags for the find command.
var (
	findValues  []string
	findTexts   []string
	findRanges  []string
	findSelect  []string
	findStrict  bool
	findTokens  bool
	findLang    string
	findLimit   int
	findOffset  int
	findIDsOnly bool
	findJSON    bool
)

func init() {
	findCmd.Flags().StringArrayVar(&findValues, "value", nil, "value constraint field=value")
	findCmd.Flags().StringArrayVar(&findTexts, "text", nil, "wildcard text constraint field=pattern")
	findCmd.Flags().StringArrayVar(&findRanges, "range", nil, "range constraint field=lower..upper (upper exclusive)")
	findCmd.Flags().StringSliceVar(&findSelect, "select", nil, "fields to return (default all)")
	findCmd.Flags().BoolVar(&findStrict, "strict", false, "text patterns must match the whole value")
	findCmd.Flags().BoolVar(&findTokens, "tokens", false, "match text values token by token")
	findCmd.Flags().StringVar(&findLang, "lang", domain.AnyLanguage, "language of text constraints")
	findCmd.Flags().IntVarP(&findLimit, "limit", "n", 0, "maximum number of results (default from config)")
	findCmd.Flags().IntVar(&findOffset, "offset", 0, "number of results to skip")
	findCmd.Flags().BoolVar(&findIDsOnly, "ids", false, "print entity ids only")
	findCmd.Flags().BoolVar(&findJSON, "json", false, "output results as JSON")
	rootCmd.AddCommand(findCmd)
}

func runFind(cmd *cobra.Command, _ []string) error {
	q, err := buildQuery()
	if err != nil {
		return err
	}

	ctx := commandContext(cmd)
	s, err := loadServices(ctx)
	if err != nil {
		return err
	}

	if findIDsOnly {
		ids, err := s.Yard.FindIDs(ctx, q)
		if err != nil {
			return fmt.Errorf("find failed: %w", err)
		}
		for _, id := range ids {
			cmd.Println(id)
		}
		return nil
	}

	reps, err := s.Yard.Find(ctx, q)
	if err != nil {
		return fmt.Errorf("find failed: %w", err)
	}
	if findJSON {
		return printJSON(cmd, reps)
	}

	if len(reps) == 0 {
		cmd.Println("No entities found.")
		return nil
	}
	for _, rep := range reps {
		cmd.Println(rep.ID)
		for _, field := range rep.Fields() {
			for _, v := range rep.Get(field) {
				cmd.Printf("  %s: %s\n", field, v)
			}
		}
	}
	return nil
}

// buildQuery assembles a FieldQuery from the find flags.
func buildQuery() (*domain.FieldQuery, error) {
	q := domain.NewFieldQuery()
	q.Limit = findLimit
	q.Offset = findOffset
	q.Select(findSelect...)

	for _, arg := range findValues {
		field, raw, err := splitConstraint(arg)
		if err != nil {
			return nil, err
		}
		v, err := domain.ParseValue(raw)
		if err != nil {
			return nil, fmt.Errorf("--value %s: %w", field, err)
		}
		c := domain.NewValueConstraint(v)
		if findTokens {
			c.Type = domain.TypeText
		}
		q.Constrain(field, c)
	}

	for _, arg := range findTexts {
		field, pattern, err := splitConstraint(arg)
		if err != nil {
			return nil, err
		}
		c := domain.NewTextConstraint(pattern, findStrict)
		c.Language = findLang
		q.Constrain(field, c)
	}

	for _, arg := range findRanges {
		field, raw, err := splitConstraint(arg)
		if err != nil {
			return nil, err
		}
		lowerRaw, upperRaw, ok := strings.Cut(raw, "..")
		if !ok {
			return nil, fmt.Errorf("--range %s: expected lower..upper, got %q", field, raw)
		}
		var lower, upper domain.Value
		if lowerRaw != "" {
			if lower, err = domain.ParseValue(lowerRaw); err != nil {
				return nil, fmt.Errorf("--range %s: %w", field, err)
			}
		}
		if upperRaw != "" {
			if upper, err = domain.ParseValue(upperRaw); err != nil {
				return nil, fmt.Errorf("--range %s: %w", field, err)
			}
		}
		q.Constrain(field, domain.NewRangeConstraint(lower, upper))
	}

	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

// splitConstraint splits field=value at the first '='.
func splitConstraint(arg string) (string, string, error) {
	field, value, ok := strings.Cut(arg, "=")
	if !ok || field == "" {
		return "", "", fmt.Errorf("%w: constraint %q is not field=value", domain.ErrInvalidInput, arg)
	}
	return field, value, nil
}
