package ocr

import (
	"io"
	"os"
	"strings"

	"golang.org/x/net/html"

	"github.com/joseph-ayodele/labreport-analyzer/constants"
)

var skipHTMLElements = map[string]bool{
	"head": true, "script": true, "style": true, "noscript": true, "template": true, "svg": true,
}

var blockHTMLElements = map[string]bool{
	"p": true, "div": true, "tr": true, "li": true, "table": true, "thead": true, "tbody": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true, "pre": true,
	"section": true, "article": true, "header": true, "footer": true, "caption": true,
	"ul": true, "ol": true, "dl": true, "dt": true, "dd": true, "blockquote": true, "body": true,
}

func (e *Extractor) extractHTML(path string) (ExtractionResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return ExtractionResult{SourceType: constants.HTML}, err
	}
	defer f.Close()
	txt, err := htmlToText(f)
	if err != nil {
		return ExtractionResult{SourceType: constants.HTML}, err
	}
	return ExtractionResult{
		Text:       txt,
		Pages:      1,
		SourceType: constants.HTML,
		Method:     "html",
		Confidence: blendConfidence(1, heuristicConfidence(txt)),
	}, nil
}

// htmlToText returns the visible text of an HTML document, one block per line.
// Table cells are tab-separated so each row stays on one line.
func htmlToText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}
	var w htmlTextWriter
	w.walk(doc)
	w.flush()
	return strings.TrimSpace(w.out.String()), nil
}

type htmlTextWriter struct {
	out  strings.Builder
	line strings.Builder
}

func (w *htmlTextWriter) flush() {
	if l := strings.TrimSpace(w.line.String()); l != "" {
		w.out.WriteString(l)
		w.out.WriteByte('\n')
	}
	w.line.Reset()
}

func (w *htmlTextWriter) walk(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		t := strings.Join(strings.Fields(n.Data), " ")
		if t == "" {
			return
		}
		if cur := w.line.String(); cur != "" && !strings.HasSuffix(cur, "\t") {
			w.line.WriteByte(' ')
		}
		w.line.WriteString(t)
		return
	case html.ElementNode:
		if skipHTMLElements[n.Data] {
			return
		}
		if n.Data == "br" {
			w.flush()
			return
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		w.walk(c)
	}
	if n.Type != html.ElementNode {
		return
	}
	switch {
	case n.Data == "td" || n.Data == "th":
		w.line.WriteByte('\t')
	case blockHTMLElements[n.Data]:
		w.flush()
	}
}
