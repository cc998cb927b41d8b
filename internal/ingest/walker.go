package ingest

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	gitignore "github.com/sabhiram/go-gitignore"
)

// DefaultIgnorePatterns are directories and files skipped in every walk,
// before any .gitignore is consulted.
var DefaultIgnorePatterns = []string{
	".git",
	"node_modules",
	"dist",
	"build",
	"vendor",
	"__pycache__",
	"coverage",
	".next",
	".cache",
	"target",
	".idea",
	".vscode",
	".DS_Store",
}

// textExts are the extensions treated as corpus content.
var textExts = map[string]bool{
	".txt": true, ".md": true, ".markdown": true, ".mdx": true,
	".json": true, ".yaml": true, ".yml": true, ".toml": true,
	".csv": true, ".log": true, ".rst": true,
	".py": true, ".ts": true, ".tsx": true, ".js": true, ".jsx": true,
	".go": true, ".rs": true, ".java": true, ".rb": true, ".php": true,
	".c": true, ".h": true, ".cpp": true, ".hpp": true, ".cc": true,
	".sh": true, ".sql": true, ".html": true, ".css": true, ".xml": true,
}

// Walker discovers corpus files under a root directory, honoring
// .gitignore files found anywhere in the tree.
type Walker struct {
	root    string
	matcher gitignore.IgnoreParser
}

// NewWalker builds a walker for root, compiling the default patterns plus
// every .gitignore in the tree into one matcher.
func NewWalker(root string) (*Walker, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("failed to stat corpus root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("corpus root is not a directory: %s", root)
	}

	patterns := append([]string{}, DefaultIgnorePatterns...)
	filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || d.Name() != ".gitignore" {
			return nil
		}
		if lines, err := readGitignoreLines(path); err == nil {
			patterns = append(patterns, lines...)
		}
		return nil
	})

	return &Walker{
		root:    root,
		matcher: gitignore.CompileIgnoreLines(patterns...),
	}, nil
}

func readGitignoreLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, scanner.Err()
}

// Walk returns the relative paths of all corpus files under the root,
// sorted for deterministic concatenation.
func (w *Walker) Walk() ([]string, error) {
	var files []string
	err := filepath.WalkDir(w.root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		rel, err := filepath.Rel(w.root, path)
		if err != nil || rel == "." {
			return nil
		}
		if w.matcher.MatchesPath(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || d.Type()&os.ModeSymlink != 0 {
			return nil
		}
		if !textExts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk corpus: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// Concat reads every corpus file and joins them into one content blob with
// a separator header naming each file. maxBytes bounds the total; files
// past the cap are listed in the tail marker rather than read.
func (w *Walker) Concat(maxBytes int64) (string, error) {
	files, err := w.Walk()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	skipped := 0
	for _, rel := range files {
		if maxBytes > 0 && int64(b.Len()) >= maxBytes {
			skipped++
			continue
		}
		remaining := int64(0)
		if maxBytes > 0 {
			remaining = maxBytes - int64(b.Len())
		}
		text, err := ReadTextFile(filepath.Join(w.root, rel), remaining)
		if err != nil {
			continue
		}
		fmt.Fprintf(&b, "===== %s =====\n%s", rel, text)
		if !strings.HasSuffix(text, "\n") {
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	if skipped > 0 {
		fmt.Fprintf(&b, "===== [%d files omitted: size cap reached] =====\n", skipped)
	}
	return b.String(), nil
}
