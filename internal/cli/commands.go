package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Sternrassler/closecrm-client/pkg/batch"
	"github.com/Sternrassler/closecrm-client/pkg/client"
	"github.com/Sternrassler/closecrm-client/pkg/pagination"
	"github.com/spf13/cobra"
)

func buildMeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "me",
		Short: "Print the user owning the API key",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			resp, err := a.client.User.Me(cmd.Context())
			if err != nil {
				return err
			}
			return writeIndented(cmd.OutOrStdout(), resp.Body)
		}),
	}
}

func buildExportCommand(a *app) *cobra.Command {
	var (
		pageSize int
		maxItems int
		query    string
		fields   []string
		filters  map[string]string
	)

	cmd := &cobra.Command{
		Use:   "export <resource>",
		Short: "Stream every object of a resource as JSON lines",
		Long: `Fetch a resource page by page and print one JSON object per line.
Pages are requested only as output is written, so --max stops early
without fetching the rest.

Run "closecrm resources" for the accepted names.`,
		Example: `  closecrm export lead --query 'status:"Potential"' > leads.jsonl
  closecrm export contact --fields id,name --max 500`,
		Args: cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			resource, err := lookup(a.client, args[0])
			if err != nil {
				return err
			}

			opts := pagination.Options{
				Limit:   pageSize,
				Fields:  fields,
				Query:   query,
				Filters: filters,
			}
			n, err := export(cmd, resource, opts, maxItems)
			a.logger.Info().
				Str("resource", args[0]).
				Int("items", n).
				Msg("Export finished")
			return err
		}),
	}

	cmd.Flags().IntVar(&pageSize, "page-size", pagination.DefaultPageSize, "objects per request")
	cmd.Flags().IntVar(&maxItems, "max", 0, "stop after this many objects (0 = all)")
	cmd.Flags().StringVarP(&query, "query", "q", "", "search query")
	cmd.Flags().StringSliceVar(&fields, "fields", nil, "fields to return")
	cmd.Flags().StringToStringVar(&filters, "filter", nil, "extra filter parameters, e.g. --filter lead_id=lead_1")

	return cmd
}

// export writes items as JSON lines and returns how many were written.
func export(cmd *cobra.Command, resource *client.Resource, opts pagination.Options, maxItems int) (int, error) {
	out := bufio.NewWriter(cmd.OutOrStdout())
	defer out.Flush()

	var n int
	for item, err := range pagination.Stream(cmd.Context(), resource.SearchPage, opts) {
		if err != nil {
			return n, err
		}
		if _, err := out.Write(append(item, '\n')); err != nil {
			return n, fmt.Errorf("write output: %w", err)
		}
		n++
		if maxItems > 0 && n >= maxItems {
			break
		}
	}
	return n, nil
}

func buildBulkDeleteCommand(a *app) *cobra.Command {
	var (
		file            string
		concurrency     int
		continueOnError bool
		dryRun          bool
	)

	cmd := &cobra.Command{
		Use:   "bulk-delete <resource>",
		Short: "Delete every id listed in a file",
		Long: `Read ids from a file (one per line, blank lines and # comments ignored)
and delete them with bounded concurrency. Without --continue-on-error
the first failure stops the run after its chunk has settled.`,
		Example: `  closecrm bulk-delete task -f task_ids.txt --concurrency 10 --continue-on-error`,
		Args:    cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("id file is required (use --file or -f)")
			}
			resource, err := lookup(a.client, args[0])
			if err != nil {
				return err
			}
			ids, err := readIDs(file)
			if err != nil {
				return err
			}

			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "would delete %d %s objects\n", len(ids), args[0])
				return nil
			}

			cfg := a.config.BatchConfig()
			if cmd.Flags().Changed("concurrency") {
				cfg.Concurrency = concurrency
			}
			if cmd.Flags().Changed("continue-on-error") {
				cfg.ContinueOnError = continueOnError
			}
			cfg.OnProgress = func(completed, total int) {
				a.logger.Debug().
					Int("completed", completed).
					Int("total", total).
					Msg("Delete progress")
			}

			result, err := batch.Run(cmd.Context(), ids, func(ctx context.Context, id string, _ int) (string, error) {
				if _, err := resource.Delete(ctx, id); err != nil {
					return "", err
				}
				return id, nil
			}, cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "deleted %d of %d\n", len(result.Successes), result.TotalAttempted)
			for _, f := range result.Failures {
				fmt.Fprintf(out, "failed %s: %v\n", f.Item, f.Err)
			}
			if len(result.Failures) > 0 {
				return fmt.Errorf("%d deletes failed", len(result.Failures))
			}
			return nil
		}),
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "file with one id per line")
	cmd.Flags().IntVar(&concurrency, "concurrency", 5, "deletes in flight per chunk")
	cmd.Flags().BoolVar(&continueOnError, "continue-on-error", false, "keep going after a failed delete")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only count the ids")

	return cmd
}

func buildResourcesCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resources",
		Short: "List the resource names accepted by export and bulk-delete",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			for _, name := range a.client.ResourceNames() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		}),
	}
}

func lookup(c *client.Client, name string) (*client.Resource, error) {
	resource, ok := c.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown resource %q (run \"closecrm resources\")", name)
	}
	return resource, nil
}

// readIDs reads one id per line, skipping blank lines and # comments.
func readIDs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open id file: %w", err)
	}
	defer f.Close()

	var ids []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		ids = append(ids, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read id file: %w", err)
	}
	if len(ids) == 0 {
		return nil, errors.New("id file is empty")
	}
	return ids, nil
}

func writeIndented(w io.Writer, body []byte) error {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		_, err := w.Write(body)
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
