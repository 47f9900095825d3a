// Package vocab holds the correction dictionary applied to dictated text.
package vocab

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"
	"unicode"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

type file struct {
	ProtectedTerms []string                     `yaml:"protected_terms"`
	Categories     map[string]map[string]string `yaml:"categories"`
}

// Dictionary maps spoken phrases to canonical forms per category and knows
// which words are protected abbreviations.
type Dictionary struct {
	categories map[string]map[string]string
	protected  map[string]struct{}

	mu       sync.Mutex
	compiled map[string]*replacer
}

type replacer struct {
	re    *regexp.Regexp
	canon map[string]string
}

// Default returns the built-in dictionary.
func Default() *Dictionary {
	d, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("vocab: built-in dictionary: %v", err))
	}
	return d
}

// Load reads a dictionary file and merges it over the built-in one.
// Entries in the file win.
func Load(path string) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}
	user, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	d := Default()
	d.Merge(user)
	return d, nil
}

func Parse(data []byte) (*Dictionary, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse vocabulary: %w", err)
	}
	d := &Dictionary{
		categories: make(map[string]map[string]string),
		protected:  make(map[string]struct{}),
		compiled:   make(map[string]*replacer),
	}
	for _, t := range f.ProtectedTerms {
		if t = strings.TrimSpace(t); t != "" {
			d.protected[strings.ToLower(t)] = struct{}{}
		}
	}
	for cat, entries := range f.Categories {
		m := make(map[string]string, len(entries))
		for spoken, canon := range entries {
			key := normalize(spoken)
			if key == "" || canon == "" {
				return nil, fmt.Errorf("category %q: empty entry %q", cat, spoken)
			}
			m[key] = canon
		}
		d.categories[cat] = m
	}
	return d, nil
}

func (d *Dictionary) Merge(other *Dictionary) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for t := range other.protected {
		d.protected[t] = struct{}{}
	}
	for cat, entries := range other.categories {
		m := d.categories[cat]
		if m == nil {
			m = make(map[string]string, len(entries))
			d.categories[cat] = m
		}
		for k, v := range entries {
			m[k] = v
		}
	}
	d.compiled = make(map[string]*replacer)
}

func (d *Dictionary) Categories() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.categories))
	for c := range d.categories {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Correct replaces every enabled spoken form with its canonical form in a
// single left-to-right pass, so replacements are never matched again. When
// phrases overlap the longest wins. A nil categories slice enables all.
func (d *Dictionary) Correct(text string, categories []string) string {
	if text == "" {
		return text
	}
	r := d.replacer(categories)
	if r == nil {
		return text
	}
	return r.re.ReplaceAllStringFunc(text, func(m string) string {
		if canon, ok := r.canon[normalize(m)]; ok {
			return canon
		}
		return m
	})
}

// IsProtectedTerm reports whether word (ignoring case and surrounding
// punctuation) is a protected abbreviation.
func (d *Dictionary) IsProtectedTerm(word string) bool {
	w := strings.ToLower(strings.TrimFunc(word, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}))
	if w == "" {
		return false
	}
	d.mu.Lock()
	_, ok := d.protected[w]
	d.mu.Unlock()
	return ok
}

func (d *Dictionary) replacer(categories []string) *replacer {
	key := "*"
	if categories != nil {
		sorted := append([]string(nil), categories...)
		sort.Strings(sorted)
		key = strings.Join(sorted, "\x00")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if r, ok := d.compiled[key]; ok {
		return r
	}

	canon := make(map[string]string)
	if categories == nil {
		for _, entries := range d.categories {
			for k, v := range entries {
				canon[k] = v
			}
		}
	} else {
		for _, c := range categories {
			for k, v := range d.categories[c] {
				canon[k] = v
			}
		}
	}
	var r *replacer
	if len(canon) > 0 {
		r = &replacer{re: compile(canon), canon: canon}
	}
	d.compiled[key] = r
	return r
}

func compile(canon map[string]string) *regexp.Regexp {
	keys := make([]string, 0, len(canon))
	for k := range canon {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	alts := make([]string, len(keys))
	for i, k := range keys {
		words := strings.Fields(k)
		for j, w := range words {
			words[j] = regexp.QuoteMeta(w)
		}
		alts[i] = strings.Join(words, `\s+`)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(alts, "|") + `)\b`)
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
