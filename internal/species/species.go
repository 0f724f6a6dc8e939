// Package species maps scientific names to localized common names, using the
// BirdNET multilingual label table shipped with the service.
package species

import (
	"encoding/csv"
	"os"
	"strings"

	"golang.org/x/text/language"

	"github.com/NINAnor/tabmon-species-api/internal/errors"
)

// ColumnScientific selects untranslated scientific names.
const ColumnScientific = "Scientific_Name"

// CommonSpecies are widespread across most monitored habitats; normal mode
// seeds its default species pick from this list.
var CommonSpecies = []string{
	"Corvus corone",
	"Columba palumbus",
	"Erithacus rubecula",
	"Turdus merula",
	"Cygnus olor",
	"Branta canadensis",
	"Cuculus canorus",
}

// supported pairs each UI language with its column in the label table.
var supported = []struct {
	tag    language.Tag
	column string
}{
	{language.English, "en_uk"},
	{language.Spanish, "es"},
	{language.Dutch, "nl"},
	{language.Norwegian, "no"},
	{language.French, "fr"},
}

// displayNames also accepts the spelled-out language names the original
// dashboard used in its selector.
var displayNames = map[string]string{
	"english":   "en_uk",
	"spanish":   "es",
	"dutch":     "nl",
	"norwegian": "no",
	"french":    "fr",
}

var matcher language.Matcher

func init() {
	tags := make([]language.Tag, len(supported))
	for i, s := range supported {
		tags[i] = s.tag
	}
	matcher = language.NewMatcher(tags)
}

// Column resolves a requested language to a label table column. It accepts
// BCP 47 tags ("en", "es-ES", "nb") and spelled-out names ("Norwegian");
// anything unresolvable falls back to scientific names.
func Column(requested string) string {
	requested = strings.TrimSpace(requested)
	if requested == "" || strings.EqualFold(requested, "scientific") || requested == ColumnScientific {
		return ColumnScientific
	}
	if column, ok := displayNames[strings.ToLower(requested)]; ok {
		return column
	}
	tag, err := language.Parse(requested)
	if err != nil {
		return ColumnScientific
	}
	_, idx, conf := matcher.Match(tag)
	if conf == language.No {
		return ColumnScientific
	}
	return supported[idx].column
}

// Translator holds the loaded label table.
type Translator struct {
	// names maps scientific name -> column -> localized name.
	names map[string]map[string]string
}

// Load reads the multilingual label CSV. The first column must be
// Scientific_Name; the remaining columns are language codes.
func Load(path string) (*Translator, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.New(err).
			Component("species").
			Category(errors.CategoryFileParsing).
			Context("path", path).
			Build()
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, errors.New(err).
			Component("species").
			Category(errors.CategoryFileParsing).
			Context("path", path).
			Build()
	}
	if len(records) < 1 {
		return nil, errors.Newf("label table %s is empty", path).
			Component("species").
			Category(errors.CategoryFileParsing).
			Build()
	}

	header := records[0]
	sciIdx := -1
	for i, col := range header {
		if col == ColumnScientific {
			sciIdx = i
			break
		}
	}
	if sciIdx < 0 {
		return nil, errors.Newf("label table %s has no %s column", path, ColumnScientific).
			Component("species").
			Category(errors.CategoryFileParsing).
			Build()
	}

	names := make(map[string]map[string]string, len(records)-1)
	for _, record := range records[1:] {
		if sciIdx >= len(record) || record[sciIdx] == "" {
			continue
		}
		translations := make(map[string]string, len(header)-1)
		for i, col := range header {
			if i == sciIdx || i >= len(record) || record[i] == "" {
				continue
			}
			translations[col] = record[i]
		}
		names[record[sciIdx]] = translations
	}

	return &Translator{names: names}, nil
}

// DisplayName returns the localized name of a species in the given column,
// falling back to the scientific name when no translation exists.
func (t *Translator) DisplayName(scientific, column string) string {
	if column == ColumnScientific {
		return scientific
	}
	if translations, ok := t.names[scientific]; ok {
		if name, ok := translations[column]; ok {
			return name
		}
	}
	return scientific
}

// DisplayNames maps each scientific name in list to its localized display
// name. Order follows the input list.
func (t *Translator) DisplayNames(list []string, column string) []Name {
	out := make([]Name, len(list))
	for i, scientific := range list {
		out[i] = Name{
			Scientific: scientific,
			Display:    t.DisplayName(scientific, column),
		}
	}
	return out
}

// Name pairs a scientific name with its localized display form.
type Name struct {
	Scientific string `json:"scientific_name"`
	Display    string `json:"display_name"`
}

// DefaultSpecies returns the common species present in detected, in
// CommonSpecies order. Normal mode seeds its species selector from these.
func DefaultSpecies(detected []string) []string {
	present := make(map[string]struct{}, len(detected))
	for _, s := range detected {
		present[s] = struct{}{}
	}
	var defaults []string
	for _, s := range CommonSpecies {
		if _, ok := present[s]; ok {
			defaults = append(defaults, s)
		}
	}
	return defaults
}
