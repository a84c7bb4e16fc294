package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/hatlonely/restsql/rdb/schema"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func newTablesCommand(configPath *string) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "tables [table]",
		Short: "list catalog and database tables, or describe one table",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			options, err := LoadOptions(*configPath)
			if err != nil {
				return err
			}
			app, err := NewApp(options)
			if err != nil {
				return err
			}
			defer app.Close()

			if len(args) == 1 {
				t, err := app.Resolver.Lookup(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printSchema(cmd.OutOrStdout(), t, format)
			}
			return printTables(cmd.OutOrStdout(), app.Service.ListTables(cmd.Context()), format)
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "output format (table|json)")
	return cmd
}

func printTables(w io.Writer, tables []schema.TableInfo, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(tables)
	case "table":
	default:
		return fmt.Errorf("invalid format %q: must be one of [table json]", format)
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"name", "key", "fields", "source", "comment"})
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	for _, t := range tables {
		table.Append([]string{t.Name, keyString(t.Key), strconv.Itoa(t.FieldCount), t.Source, t.Comment})
	}
	table.Render()
	return nil
}

// printSchema 数据库中查到的表只有列名，类型和注释为空
func printSchema(w io.Writer, t *schema.TableSchema, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(t)
	case "table":
	default:
		return fmt.Errorf("invalid format %q: must be one of [table json]", format)
	}

	fmt.Fprintf(w, "%s (key: %s)\n", t.Name, keyString(t.Key.Value()))
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"field", "type", "key", "comment"})
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	for _, f := range t.Fields {
		isKey := ""
		for _, k := range t.Key {
			if strings.EqualFold(k, f.Name) {
				isKey = "*"
			}
		}
		table.Append([]string{f.Name, f.Type, isKey, f.Comment})
	}
	table.Render()
	return nil
}

func keyString(key any) string {
	switch k := key.(type) {
	case nil:
		return ""
	case string:
		return k
	case []string:
		return strings.Join(k, ",")
	default:
		return fmt.Sprint(k)
	}
}
