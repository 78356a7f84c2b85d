package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"svg2png/internal/config"
	"svg2png/internal/domain"
	"svg2png/internal/render"
)

type convertOptions struct {
	output   string
	engine   string
	width    int
	height   int
	asBase64 bool
}

func newConvertCmd() *cobra.Command {
	var opts convertOptions
	cmd := &cobra.Command{
		Use:   "convert <input.svg|->",
		Short: "Convert a single SVG file to PNG",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			if opts.engine != "" {
				cfg.Render.Engine = opts.engine
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runConvert(cmd.Context(), cfg, args[0], opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output PNG path (default: stdout)")
	cmd.Flags().StringVar(&opts.engine, "engine", "", "render engine: chromium or oksvg (default from config)")
	cmd.Flags().IntVar(&opts.width, "width", 0, "output width in pixels")
	cmd.Flags().IntVar(&opts.height, "height", 0, "output height in pixels")
	cmd.Flags().BoolVar(&opts.asBase64, "base64", false, "write base64 text instead of binary PNG")
	return cmd
}

func runConvert(ctx context.Context, cfg config.Config, input string, opts convertOptions, stdin io.Reader, stdout io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var svg []byte
	var err error
	if input == "-" {
		svg, err = io.ReadAll(stdin)
	} else {
		svg, err = os.ReadFile(input)
	}
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	req := domain.ConversionRequest{
		SVGBase64:    base64.StdEncoding.EncodeToString(svg),
		OutputWidth:  &opts.width,
		OutputHeight: &opts.height,
	}
	doc, err := req.Document()
	if err != nil {
		return err
	}

	renderer, err := render.New(cfg)
	if err != nil {
		return err
	}
	defer renderer.Close()

	png, err := renderer.Render(ctx, doc)
	if err != nil {
		return domain.ConversionFailed(err)
	}
	res, err := domain.NewResult(png)
	if err != nil {
		return err
	}

	out := png
	if opts.asBase64 {
		out = []byte(res.PNGBase64 + "\n")
	}
	if opts.output == "" {
		_, err = stdout.Write(out)
		return err
	}
	return os.WriteFile(opts.output, out, 0o644)
}
