package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ledongthuc/pdf"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"
)

// ErrUnsupportedFile indicates a file type the pipeline cannot load.
var ErrUnsupportedFile = errors.New("ingest: unsupported file type")

// supportedExtensions lists the file types the pipeline knows how to load.
var supportedExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".csv":  true,
	".json": true,
	".html": true,
	".pdf":  true,
}

// section is one loadable unit of a source file. Most files yield a single
// section; PDFs yield one per page and markdown one per heading.
type section struct {
	text  string
	title string
	page  int // 1-based for PDFs, zero otherwise

	// noSplit keeps the section as a single chunk regardless of size.
	// Set for CSV files, where splitting rows destroys tabular meaning.
	noSplit bool
}

func loadFile(path string) ([]section, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return loadPDF(path)
	case ".csv":
		return loadCSV(path)
	case ".html":
		return loadHTML(path)
	case ".md":
		return loadMarkdown(path)
	default:
		return loadPlainText(path)
	}
}

func loadPlainText(path string) ([]section, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		return nil, nil
	}
	return []section{{text: content}}, nil
}

// loadCSV renders the whole table as one "header: value" section so related
// rows are never separated by the splitter.
func loadCSV(path string) ([]section, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	header := records[0]
	var builder strings.Builder
	for _, row := range records[1:] {
		for i, value := range row {
			name := fmt.Sprintf("column_%d", i+1)
			if i < len(header) {
				name = header[i]
			}
			builder.WriteString(name)
			builder.WriteString(": ")
			builder.WriteString(value)
			builder.WriteString("\n")
		}
		builder.WriteString("\n")
	}

	content := strings.TrimSpace(builder.String())
	if content == "" {
		return nil, nil
	}
	return []section{{text: content, noSplit: true}}, nil
}

func loadHTML(path string) ([]section, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse html %s: %w", path, err)
	}

	doc.Find("script, style, noscript").Remove()

	title := strings.TrimSpace(doc.Find("title").First().Text())
	body := doc.Find("body").Text()
	if strings.TrimSpace(body) == "" {
		body = doc.Text()
	}

	content := normalizeWhitespace(body)
	if content == "" {
		return nil, nil
	}
	return []section{{text: content, title: title}}, nil
}

// loadMarkdown cuts the document at level-1 and level-2 headings using the
// goldmark AST, so a "# heading" inside a code fence does not start a new
// section.
func loadMarkdown(path string) ([]section, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	root := md.Parser().Parse(text.NewReader(source))

	type boundary struct {
		offset int
		title  string
	}
	var bounds []boundary

	err = ast.Walk(root, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		heading, ok := n.(*ast.Heading)
		if !ok || !entering || heading.Level > 2 || heading.Lines().Len() == 0 {
			return ast.WalkContinue, nil
		}

		seg := heading.Lines().At(0)
		offset := seg.Start
		// Walk back to the start of the heading line to include the markers.
		for offset > 0 && source[offset-1] != '\n' {
			offset--
		}
		bounds = append(bounds, boundary{
			offset: offset,
			title:  strings.TrimSpace(string(seg.Value(source))),
		})
		return ast.WalkSkipChildren, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk markdown %s: %w", path, err)
	}

	if len(bounds) == 0 {
		content := strings.TrimSpace(string(source))
		if content == "" {
			return nil, nil
		}
		return []section{{text: content}}, nil
	}

	var sections []section
	if preamble := strings.TrimSpace(string(source[:bounds[0].offset])); preamble != "" {
		sections = append(sections, section{text: preamble})
	}
	for i, b := range bounds {
		end := len(source)
		if i+1 < len(bounds) {
			end = bounds[i+1].offset
		}
		content := strings.TrimSpace(string(source[b.offset:end]))
		if content == "" {
			continue
		}
		sections = append(sections, section{text: content, title: b.title})
	}
	return sections, nil
}

// loadPDF extracts text page by page so chunks keep their real page number.
func loadPDF(path string) ([]section, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	reader, err := pdf.NewReader(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to create pdf reader for %s: %w", path, err)
	}

	var sections []section
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		content, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		content = cleanExtractedText(content)
		if content == "" {
			continue
		}
		sections = append(sections, section{text: content, page: i})
	}
	return sections, nil
}

var (
	runsOfSpaces   = regexp.MustCompile(`[ \t]+`)
	blankLines     = regexp.MustCompile(`\n[ \t]*\n`)
	excessNewlines = regexp.MustCompile(`\n{3,}`)
)

func cleanExtractedText(text string) string {
	text = runsOfSpaces.ReplaceAllString(text, " ")
	text = blankLines.ReplaceAllString(text, "\n\n")
	text = excessNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

func normalizeWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, runsOfSpaces.ReplaceAllString(trimmed, " "))
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
