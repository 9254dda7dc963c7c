package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"forms2xml/internal/client"
	"forms2xml/internal/fileutil"
)

func newSubmitCommand(ctx *commandContext) *cobra.Command {
	var remoteDst string
	var serverPath bool

	cmd := &cobra.Command{
		Use:   "submit [src] [dst]",
		Short: "Convert a module through a running gateway",
		Long: `Convert a module through a running gateway.

The source is read from src, or stdin when src is omitted or "-". Bodies that
start with an XML declaration are compiled to a binary module; anything else is
dumped to XML. The result goes to dst, or stdout when dst is omitted or "-".

With --server-path, src names a file the gateway reads itself.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, dst := "-", "-"
			if len(args) > 0 {
				src = args[0]
			}
			if len(args) > 1 {
				dst = args[1]
			}

			c, err := ctx.newClient()
			if err != nil {
				return err
			}
			addr, _ := ctx.gatewayAddress()

			return writeOutput(cmd.OutOrStdout(), dst, func(w io.Writer) (client.Result, error) {
				if serverPath {
					if src == "-" {
						return client.Result{}, errors.New("--server-path requires a source path")
					}
					return c.ConvertPath(cmd.Context(), src, remoteDst, w)
				}
				body, err := readSource(cmd.InOrStdin(), src)
				if err != nil {
					return client.Result{}, err
				}
				return c.Submit(cmd.Context(), body, remoteDst, w)
			}, func(res client.Result, err error) error {
				var respErr *client.ResponseError
				if err != nil && !errors.As(err, &respErr) {
					return wrapConnectError(err, addr)
				}
				if err != nil {
					return err
				}
				if res.Location != "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "Gateway wrote %s\n", res.Location)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&remoteDst, "remote-dst", "", "Have the gateway write the result to this server-side path")
	cmd.Flags().BoolVar(&serverPath, "server-path", false, "Treat src as a path the gateway reads directly")
	return cmd
}

func readSource(stdin io.Reader, src string) ([]byte, error) {
	if src == "" || src == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(src)
}

// writeOutput runs convert against stdout or a temp file next to dst that is
// moved into place only when the conversion succeeds.
func writeOutput(stdout io.Writer, dst string, convert func(io.Writer) (client.Result, error), done func(client.Result, error) error) error {
	if dst == "" || dst == "-" {
		return done(convert(stdout))
	}

	dst = strings.TrimSpace(dst)
	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.part")
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	res, convErr := convert(tmp)
	closeErr := tmp.Close()
	if err := done(res, convErr); err != nil {
		return err
	}
	if closeErr != nil {
		return fmt.Errorf("write output: %w", closeErr)
	}
	if res.Location != "" {
		return nil
	}
	if err := fileutil.MoveFile(tmpPath, dst); err != nil {
		return fmt.Errorf("move output into place: %w", err)
	}
	return nil
}
