package render

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"os"
	"path/filepath"

	"github.com/rs/xid"
)

// pageTemplate centres the SVG in a fixed-size body and forces it to fill the
// viewport, so the screenshot size does not depend on the SVG's own size.
var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<style>
  * {
    margin: 0;
    padding: 0;
    box-sizing: border-box;
  }
  html, body {
    width: {{.Width}}px;
    height: {{.Height}}px;
    overflow: hidden;
  }
  body {
    display: flex;
    justify-content: center;
    align-items: center;
    background: {{.Background}};
  }
  svg {
    width: {{.Width}}px !important;
    height: {{.Height}}px !important;
    max-width: {{.Width}}px;
    max-height: {{.Height}}px;
  }
</style>
</head>
<body>
{{.Markup}}
</body>
</html>
`))

type pageData struct {
	Width      int
	Height     int
	Background template.CSS
	Markup     template.HTML
}

// buildPage wraps markup in the render page. The markup is inserted verbatim.
func buildPage(markup []byte, width, height int, transparent bool) ([]byte, error) {
	bg := template.CSS("white")
	if transparent {
		bg = "transparent"
	}
	var buf bytes.Buffer
	err := pageTemplate.Execute(&buf, pageData{
		Width:      width,
		Height:     height,
		Background: bg,
		Markup:     template.HTML(markup),
	})
	if err != nil {
		return nil, fmt.Errorf("build render page: %w", err)
	}
	return buf.Bytes(), nil
}

// writeTempPage stores page in a uniquely named file under dir (or the system
// temp dir) and returns its path.
func writeTempPage(dir string, page []byte) (string, error) {
	f, err := os.CreateTemp(dir, "svg2png-"+xid.New().String()+"-*.html")
	if err != nil {
		return "", fmt.Errorf("create temp page: %w", err)
	}
	path := f.Name()
	if _, err := f.Write(page); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write temp page: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("close temp page: %w", err)
	}
	return path, nil
}

func fileURL(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}
