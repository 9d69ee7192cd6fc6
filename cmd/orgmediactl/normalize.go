package main

import (
	"io"
	"os"

	"orgmedia/internal/media"

	"github.com/spf13/cobra"
)

func newNormalizeCmd(a *app) *cobra.Command {
	var origin, embedded string

	cmd := &cobra.Command{
		Use:   "normalize [FILE]",
		Short: "Print canonical media items for a JSON dump (stdin when FILE is omitted or -)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}

			body, err := media.DecodeBody(r)
			if err != nil {
				return err
			}
			records := media.UnwrapRecords(body, embedded)
			if obj, ok := body.(map[string]interface{}); ok && len(records) == 0 {
				// A single record
				records = []map[string]interface{}{obj}
			}

			pub := a.publisher(origin)
			items := media.NormalizeAll(records)
			out := make([]map[string]interface{}, len(items))
			for i, item := range items {
				out[i] = media.ToRecord(pub.PublishItem(item))
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVar(&origin, "origin", "", "public origin used to print absolute URLs")
	cmd.Flags().StringVar(&embedded, "embedded", "items", "key under _embedded holding the records")
	return cmd
}
