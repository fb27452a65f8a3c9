// Package registry maps subjects to languages to group directories.
package registry

import (
	"sort"
	"strings"
	"sync"

	"github.com/alem-hub/study-group-finder/internal/domain/grouping"
	"github.com/alem-hub/study-group-finder/internal/domain/shared"
)

// Factory builds the directory for a newly registered (subject, language) pair.
type Factory func(subject, language string) *grouping.Directory

// Registry is a two-level lookup: subject -> language -> directory.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	subjects map[string]map[string]*grouping.Directory
	factory  Factory

	// renameMu orders renames, whose directories are updated after mu is
	// released.
	renameMu sync.Mutex
}

// New creates an empty registry. A nil factory builds directories with
// default options.
func New(factory Factory) *Registry {
	if factory == nil {
		factory = func(subject, language string) *grouping.Directory {
			return grouping.NewDirectory(subject, language)
		}
	}
	return &Registry{
		subjects: make(map[string]map[string]*grouping.Directory),
		factory:  factory,
	}
}

func normalize(s string) string {
	return strings.TrimSpace(s)
}

// ══════════════════════════════════════════════════════════════════════════════
// SUBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// AddSubject registers a subject with no languages.
func (r *Registry) AddSubject(subject string) error {
	subject = normalize(subject)
	if subject == "" {
		return shared.ErrEmptyKey
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subjects[subject]; ok {
		return shared.ErrSubjectExists
	}
	r.subjects[subject] = make(map[string]*grouping.Directory)
	return nil
}

// RemoveSubject drops a subject and all its directories.
func (r *Registry) RemoveSubject(subject string) error {
	subject = normalize(subject)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.subjects[subject]; !ok {
		return shared.ErrSubjectNotFound
	}
	delete(r.subjects, subject)
	return nil
}

// SubjectExists reports whether a subject is registered.
func (r *Registry) SubjectExists(subject string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.subjects[normalize(subject)]
	return ok
}

// Subjects returns the registered subjects in sorted order.
func (r *Registry) Subjects() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.subjects))
	for s := range r.subjects {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// RenameSubject moves every language of oldName under newName. Each
// directory publishes its rename outside the registry lock.
func (r *Registry) RenameSubject(oldName, newName string) error {
	oldName, newName = normalize(oldName), normalize(newName)
	if newName == "" {
		return shared.ErrEmptyKey
	}

	r.renameMu.Lock()
	defer r.renameMu.Unlock()

	r.mu.Lock()
	langs, ok := r.subjects[oldName]
	if !ok {
		r.mu.Unlock()
		return shared.ErrSubjectNotFound
	}
	if _, exists := r.subjects[newName]; exists {
		r.mu.Unlock()
		return shared.ErrSubjectExists
	}
	r.subjects[newName] = langs
	delete(r.subjects, oldName)

	dirs := make([]*grouping.Directory, 0, len(langs))
	for _, d := range langs {
		dirs = append(dirs, d)
	}
	r.mu.Unlock()

	for _, d := range dirs {
		d.Rename(newName)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LANGUAGES
// ══════════════════════════════════════════════════════════════════════════════

// AddLanguage creates the directory for (subject, language).
func (r *Registry) AddLanguage(subject, language string) (*grouping.Directory, error) {
	subject, language = normalize(subject), normalize(language)
	if subject == "" || language == "" {
		return nil, shared.ErrEmptyKey
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	langs, ok := r.subjects[subject]
	if !ok {
		return nil, shared.ErrSubjectNotFound
	}
	if _, exists := langs[language]; exists {
		return nil, shared.ErrLanguageExists
	}

	d := r.factory(subject, language)
	langs[language] = d
	return d, nil
}

// RemoveLanguage drops the directory for (subject, language).
func (r *Registry) RemoveLanguage(subject, language string) error {
	subject, language = normalize(subject), normalize(language)

	r.mu.Lock()
	defer r.mu.Unlock()

	langs, ok := r.subjects[subject]
	if !ok {
		return shared.ErrSubjectNotFound
	}
	if _, exists := langs[language]; !exists {
		return shared.ErrLanguageNotFound
	}
	delete(langs, language)
	return nil
}

// LanguageExists reports whether subject has a directory for language.
func (r *Registry) LanguageExists(subject, language string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	langs, ok := r.subjects[normalize(subject)]
	if !ok {
		return false
	}
	_, ok = langs[normalize(language)]
	return ok
}

// Languages returns the languages of a subject in sorted order.
func (r *Registry) Languages(subject string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	langs, ok := r.subjects[normalize(subject)]
	if !ok {
		return nil, shared.ErrSubjectNotFound
	}

	out := make([]string, 0, len(langs))
	for l := range langs {
		out = append(out, l)
	}
	sort.Strings(out)
	return out, nil
}

// Directory returns the directory for (subject, language).
func (r *Registry) Directory(subject, language string) (*grouping.Directory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	langs, ok := r.subjects[normalize(subject)]
	if !ok {
		return nil, shared.ErrSubjectNotFound
	}
	d, ok := langs[normalize(language)]
	if !ok {
		return nil, shared.ErrLanguageNotFound
	}
	return d, nil
}

// Ensure returns the directory for (subject, language), registering the
// subject and the language when missing.
func (r *Registry) Ensure(subject, language string) (*grouping.Directory, error) {
	subject, language = normalize(subject), normalize(language)
	if subject == "" || language == "" {
		return nil, shared.ErrEmptyKey
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	langs, ok := r.subjects[subject]
	if !ok {
		langs = make(map[string]*grouping.Directory)
		r.subjects[subject] = langs
	}
	d, ok := langs[language]
	if !ok {
		d = r.factory(subject, language)
		langs[language] = d
	}
	return d, nil
}

// Each calls fn for every directory in (subject, language) order. The
// registry lock is not held while fn runs, so fn may take the directory lock.
func (r *Registry) Each(fn func(subject, language string, d *grouping.Directory)) {
	type entry struct {
		subject, language string
		d                 *grouping.Directory
	}

	r.mu.RLock()
	var entries []entry
	for s, langs := range r.subjects {
		for l, d := range langs {
			entries = append(entries, entry{s, l, d})
		}
	}
	r.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].subject != entries[j].subject {
			return entries[i].subject < entries[j].subject
		}
		return entries[i].language < entries[j].language
	})

	for _, e := range entries {
		fn(e.subject, e.language, e.d)
	}
}

// Len returns the number of registered directories.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, langs := range r.subjects {
		n += len(langs)
	}
	return n
}
