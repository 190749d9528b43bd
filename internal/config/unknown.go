package config

import (
	"cmp"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/BurntSushi/toml"
)

// maxSuggestDistance bounds "did you mean?" suggestions.
const maxSuggestDistance = 3

// knownKeys lists the valid keys of every config section.
var knownKeys = map[string][]string{
	"remote":   {"auth_url", "base_url", "client_id", "device_auth_url", "scopes", "token_url"},
	"tracking": {"min_report_interval"},
	"refresh":  {"force_on_start", "interval"},
	"storage":  {"catalog_file", "data_dir"},
	"serve":    {"listen_addr"},
	"logging":  {"log_format", "log_level"},
	"network":  {"connect_timeout", "data_timeout", "user_agent"},
}

var knownSections = slices.Sorted(maps.Keys(knownKeys))

// checkUnknownKeys turns every key the decoder skipped into an error, one
// per distinct key or section.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	seen := make(map[string]bool)

	for _, key := range md.Undecoded() {
		if err := unknownKeyError(key); err != nil && !seen[err.Error()] {
			seen[err.Error()] = true
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// unknownKeyError builds the error for one undecoded key. An unknown section
// is matched against section names, a nested key against its section's keys.
// Every key below an unknown section yields the same error.
func unknownKeyError(key toml.Key) error {
	section := key[0]

	keys, ok := knownKeys[section]
	if !ok {
		return suggest(fmt.Sprintf("unknown config section %q", section), section, knownSections)
	}

	if len(key) == 1 {
		return nil
	}

	return suggest(fmt.Sprintf("unknown key %q in [%s]", key[1], section), key[1], keys)
}

func suggest(msg, name string, candidates []string) error {
	if s := closestMatch(name, candidates); s != "" {
		return fmt.Errorf("%s: did you mean %q?", msg, s)
	}

	return errors.New(msg)
}

// closestMatch returns the candidate nearest to name, preferring the
// alphabetically first on ties, or "" when none is within maxSuggestDistance.
func closestMatch(name string, candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}

	type scored struct {
		key  string
		dist int
	}

	all := make([]scored, len(candidates))
	for i, c := range candidates {
		all[i] = scored{c, editDistance(name, c)}
	}

	best := slices.MinFunc(all, func(a, b scored) int {
		return cmp.Or(cmp.Compare(a.dist, b.dist), cmp.Compare(a.key, b.key))
	})

	if best.dist > maxSuggestDistance {
		return ""
	}

	return best.key
}

// editDistance is the Levenshtein distance between a and b over runes.
func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)

	row := make([]int, len(rb)+1)
	for j := range row {
		row[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		diag := row[0]
		row[0] = i

		for j := 1; j <= len(rb); j++ {
			above := row[j]

			sub := diag
			if ra[i-1] != rb[j-1] {
				sub++
			}

			row[j] = min(row[j-1]+1, above+1, sub)
			diag = above
		}
	}

	return row[len(rb)]
}
