package loader

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"strconv"
	"strings"
)

// DefaultChunkSize is the window length, in runes, used when none is configured.
const DefaultChunkSize = 3000

// ErrEmptyCorpus is returned when a corpus yields no chunks at all.
var ErrEmptyCorpus = errors.New("corpus produced no chunks")

// Document is a raw documentation file read from the corpus
type Document struct {
	Path    string // Path relative to the corpus root
	Content string
}

// Chunk represents a fixed-size window of a documentation section
type Chunk struct {
	Path    string // File path relative to the corpus root
	Section int    // Ordinal of the logical section within the file
	Part    int    // Ordinal of the window within the section
	Content string // The actual text content
}

// Label renders the provenance label of the chunk. Used for diagnostics only.
func (c Chunk) Label() string {
	return fmt.Sprintf("%s (section %d, part %d)", c.Path, c.Section, c.Part)
}

var (
	directiveRe = regexp.MustCompile(`\.\. .*?::`)
	refRe       = regexp.MustCompile(":ref:`.*?`")
	underlineRe = regexp.MustCompile(`\n\s*(=+|-+|~+|\^+|\++)\n`)
)

// LoadDocuments reads all files with the given extension below root
// and returns them in lexical walk order
func LoadDocuments(fsys fs.FS, root, ext string) ([]Document, error) {
	var docs []Document

	err := fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			return nil
		}

		if !strings.HasSuffix(p, ext) {
			return nil
		}

		content, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("reading %s: %w", p, err)
		}

		rel := strings.TrimPrefix(p, path.Clean(root)+"/")
		if root == "." {
			rel = p
		}

		docs = append(docs, Document{Path: rel, Content: string(content)})
		return nil
	})

	return docs, err
}

// CleanRST strips directive markers and cross-reference tags, leaving prose untouched
func CleanRST(content string) string {
	content = directiveRe.ReplaceAllString(content, "")
	content = refRe.ReplaceAllString(content, "")
	return content
}

// SplitSections splits a cleaned document on heading underlines. Each section
// keeps the underline that closes it; the segment after the last underline is a
// section of its own. Sections are trimmed and may be empty.
func SplitSections(content string) []string {
	matches := underlineRe.FindAllStringSubmatchIndex(content, -1)

	sections := make([]string, 0, len(matches)+1)
	start := 0
	for _, m := range matches {
		// m[2]:m[3] is the underline run itself
		sections = append(sections, strings.TrimSpace(content[start:m[0]]+content[m[2]:m[3]]))
		start = m[1]
	}
	sections = append(sections, strings.TrimSpace(content[start:]))

	return sections
}

// ChunkDocument cleans a document, splits it into sections and cuts each
// section into consecutive non-overlapping windows of size runes
func ChunkDocument(doc Document, size int) []Chunk {
	if size <= 0 {
		size = DefaultChunkSize
	}

	var chunks []Chunk
	for idx, section := range SplitSections(CleanRST(doc.Content)) {
		runes := []rune(section)
		for i := 0; i < len(runes); i += size {
			end := min(i+size, len(runes))
			chunks = append(chunks, Chunk{
				Path:    doc.Path,
				Section: idx,
				Part:    i / size,
				Content: string(runes[i:end]),
			})
		}
	}

	return chunks
}

// ChunkCorpus loads and chunks every document below root.
// An empty result is an error: an index must never be built from zero rows.
func ChunkCorpus(fsys fs.FS, root, ext string, size int) ([]Document, []Chunk, error) {
	docs, err := LoadDocuments(fsys, root, ext)
	if err != nil {
		return nil, nil, err
	}

	var allChunks []Chunk
	for _, doc := range docs {
		allChunks = append(allChunks, ChunkDocument(doc, size)...)
	}

	if len(allChunks) == 0 {
		return docs, nil, fmt.Errorf("%w: %d %s files under %s", ErrEmptyCorpus, len(docs), ext, root)
	}

	return docs, allChunks, nil
}

// ContentHash fingerprints a corpus together with the chunk size, so that any
// change to either invalidates a cached index
func ContentHash(docs []Document, size int) string {
	h := sha256.New()
	h.Write([]byte(strconv.Itoa(size)))
	for _, doc := range docs {
		h.Write([]byte{0})
		h.Write([]byte(doc.Path))
		h.Write([]byte{0})
		h.Write([]byte(doc.Content))
	}
	return hex.EncodeToString(h.Sum(nil))
}
