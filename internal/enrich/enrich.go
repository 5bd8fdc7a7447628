// Package enrich derives per-chunk metadata from gazette text: section
// type, currency amounts, table hints, and a coarse entity extraction
// good enough for filters but not for downstream NLP.
//
// Everything here is pure and deterministic: the same text always
// yields the same metadata.
package enrich

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// Section types, ordered by precedence. Ties in the regex-bank scoring
// break toward the earlier family.
const (
	SectionDecree      = "decree"
	SectionResolution  = "resolution"
	SectionTender      = "tender"
	SectionSubsidy     = "subsidy"
	SectionAppointment = "appointment"
	SectionBudget      = "budget"
	SectionGeneral     = "general"
)

// DefaultLanguage is assumed for the target corpus unless the caller
// overrides it.
const DefaultLanguage = "es"

const maxEntitiesPerKind = 5

// Metadata is the enrichment result for one chunk.
type Metadata struct {
	SectionType string              `json:"section_type"`
	Language    string              `json:"language"`
	HasTables   bool                `json:"has_tables"`
	HasAmounts  bool                `json:"has_amounts"`
	Entities    map[string][]string `json:"entities,omitempty"`
	Topic       string              `json:"topic,omitempty"`
	ChunkHash   string              `json:"chunk_hash"`
}

// sectionBanks maps each section family to its detection regexes.
// Matches are counted per family; the family with the most wins.
var sectionBanks = []struct {
	section string
	regexes []*regexp.Regexp
}{
	{SectionDecree, compileBank(
		`(?i)\bdecreto\b`,
		`(?i)\bdecretase\b`,
		`(?i)\bpoder ejecutivo\b`,
		`(?i)\bARTICULO \d+`,
	)},
	{SectionResolution, compileBank(
		`(?i)\bresoluci[óo]n\b`,
		`(?i)\bresuelve\b`,
		`(?i)\bdisposici[óo]n\b`,
	)},
	{SectionTender, compileBank(
		`(?i)\blicitaci[óo]n\b`,
		`(?i)\bconcurso de precios\b`,
		`(?i)\bllamado a licitaci[óo]n\b`,
		`(?i)\bapertura de ofertas\b`,
		`(?i)\bpliego\b`,
	)},
	{SectionSubsidy, compileBank(
		`(?i)\bsubsidio\b`,
		`(?i)\baporte no reintegrable\b`,
		`(?i)\bayuda econ[óo]mica\b`,
		`(?i)\botorga(?:se|r)?\s+(?:un\s+)?subsidio\b`,
	)},
	{SectionAppointment, compileBank(
		`(?i)\bdes[íi]gna(?:se|r|ci[óo]n)?\b`,
		`(?i)\bn[óo]mbra(?:se|miento)?\b`,
		`(?i)\bac[ée]pta(?:se)?\s+la\s+renuncia\b`,
		`(?i)\bpromoci[óo]n\s+de\s+agente\b`,
	)},
	{SectionBudget, compileBank(
		`(?i)\bpresupuesto\b`,
		`(?i)\bpartida presupuestaria\b`,
		`(?i)\bejercicio fiscal\b`,
		`(?i)\bcr[ée]dito adicional\b`,
	)},
}

// amountBank detects monetary references. The cleaner rewrites "$" into
// "pesos ", so both raw and canonical forms are covered.
var amountBank = compileBank(
	`\$\s?\d[\d.,]*`,
	`(?i)\bpesos\s+\d[\d.,]*`,
	`(?i)\bpesos\s+[a-záéíóú]+`,
	`(?i)\b(?:ars|usd|u\$s)\s?\d[\d.,]*`,
	`(?i)\bmonto\s+(?:total\s+)?de\b`,
)

var (
	rePipeRow    = regexp.MustCompile(`\|[^|\n]+\|`)
	reDeepIndent = regexp.MustCompile(`(?m)^ {8,}\S`)
	reAmountCapt = regexp.MustCompile(`(?i)(?:\$\s?|pesos\s+)\d[\d.,]*`)
	// The optional prefix swallows a leading article so captures start at
	// the organism proper ("El Ministerio de Finanzas" -> "Ministerio de
	// Finanzas").
	reOrganism   = regexp.MustCompile(`\b(?:(?:El|La|Los|Las)\s+)?((?:[A-ZÁÉÍÓÚÑ][a-záéíóúñ]+\s+)+(?:de|del|Provincia|Municipal)(?:\s+[A-ZÁÉÍÓÚÑ][a-záéíóúñ]+)*)`)
	rePersonPair = regexp.MustCompile(`\b([A-ZÁÉÍÓÚÑ][a-záéíóúñ]+\s+[A-ZÁÉÍÓÚÑ][a-záéíóúñ]+)\b`)
)

var (
	leadingArticles = map[string]bool{
		"El": true, "La": true, "Los": true, "Las": true,
	}
	personStopList = map[string]bool{
		"Boletín Oficial":    true,
		"Boletin Oficial":    true,
		"Provincia Córdoba":  true,
		"Provincia Cordoba":  true,
		"Poder Ejecutivo":    true,
		"Poder Legislativo":  true,
		"Ministerio Público": true,
	}
)

func compileBank(patterns ...string) []*regexp.Regexp {
	bank := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		bank[i] = regexp.MustCompile(p)
	}
	return bank
}

// Options adjusts enrichment per call.
type Options struct {
	// Language overrides the default "es" tag.
	Language string
	// Topic is an optional caller-supplied tag copied through.
	Topic string
}

// Enrich computes the metadata for one chunk of cleaned text.
func Enrich(text string, opts Options) *Metadata {
	meta := &Metadata{
		SectionType: detectSection(text),
		Language:    DefaultLanguage,
		HasTables:   detectTables(text),
		HasAmounts:  detectAmounts(text),
		Entities:    extractEntities(text),
		Topic:       opts.Topic,
		ChunkHash:   Hash(text),
	}
	if opts.Language != "" {
		meta.Language = opts.Language
	}
	return meta
}

// Hash returns the hex SHA-256 of text. Chunks with identical text
// share a hash by construction.
func Hash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// detectSection scores every family bank and returns the best match,
// ties breaking by bank order. No match at all means "general".
func detectSection(text string) string {
	best := SectionGeneral
	bestScore := 0
	for _, bank := range sectionBanks {
		score := 0
		for _, re := range bank.regexes {
			score += len(re.FindAllStringIndex(text, -1))
		}
		if score > bestScore {
			best = bank.section
			bestScore = score
		}
	}
	return best
}

func detectAmounts(text string) bool {
	for _, re := range amountBank {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

// detectTables looks for the artifacts columnar layouts leave in
// extracted text: tab characters, pipe-delimited rows, or deeply
// indented line starts.
func detectTables(text string) bool {
	return strings.ContainsRune(text, '\t') ||
		rePipeRow.MatchString(text) ||
		reDeepIndent.MatchString(text)
}

// extractEntities pulls amounts, organisms, and person-name pairs, up
// to maxEntitiesPerKind each. Returns nil when nothing matched so the
// store can skip the column.
func extractEntities(text string) map[string][]string {
	entities := make(map[string][]string)

	if amounts := dedupeHead(reAmountCapt.FindAllString(text, -1)); len(amounts) > 0 {
		entities["amounts"] = amounts
	}

	var organisms []string
	for _, m := range reOrganism.FindAllStringSubmatch(text, -1) {
		organisms = append(organisms, strings.TrimSpace(m[1]))
	}
	if organisms = dedupeHead(organisms); len(organisms) > 0 {
		entities["organisms"] = organisms
	}

	var persons []string
	for _, m := range rePersonPair.FindAllStringSubmatch(text, -1) {
		name := m[1]
		if personStopList[name] {
			continue
		}
		// "El Ministerio", "La Secretaría": an article plus a noun is
		// never a person name.
		if first, _, ok := strings.Cut(name, " "); ok && leadingArticles[first] {
			continue
		}
		// Organism phrases also match the capitalized-pair shape; a
		// name already claimed as an organism prefix is not a person.
		if isOrganismPrefix(name, organisms) {
			continue
		}
		persons = append(persons, name)
	}
	if persons = dedupeHead(persons); len(persons) > 0 {
		entities["persons"] = persons
	}

	if len(entities) == 0 {
		return nil
	}
	return entities
}

func isOrganismPrefix(name string, organisms []string) bool {
	for _, org := range organisms {
		if strings.HasPrefix(org, name) {
			return true
		}
	}
	return false
}

// dedupeHead removes duplicates preserving order and caps the list.
func dedupeHead(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, maxEntitiesPerKind)
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
		if len(out) == maxEntitiesPerKind {
			break
		}
	}
	return out
}
