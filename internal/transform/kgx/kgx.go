// Package kgx holds helpers shared by the source transforms: CURIE handling,
// Biolink category guessing and a writer for KGX node/edge TSV tables.
package kgx

import (
	"strings"

	"github.com/google/uuid"
)

// Biolink categories and predicates emitted by the transforms.
const (
	CategoryNamedThing    = "biolink:NamedThing"
	CategoryProtein       = "biolink:Protein"
	CategoryOntologyClass = "biolink:OntologyClass"
	CategoryChemical      = "biolink:ChemicalEntity"
	CategoryGene          = "biolink:Gene"
	CategoryPathway       = "biolink:Pathway"

	PredicateParticipatesIn = "biolink:participates_in"
	PredicateSubclassOf     = "biolink:subclass_of"

	EdgeCategory = "biolink:Association"
)

// prefixCategories maps lower-cased CURIE prefixes to their Biolink category.
var prefixCategories = map[string]string{
	"uniprotkb":     CategoryProtein,
	"complexportal": CategoryProtein,
	"go":            CategoryOntologyClass,
	"chebi":         CategoryChemical,
	"ensembl":       CategoryGene,
	"ncbigene":      CategoryGene,
	"hgnc":          CategoryGene,
	"react":         CategoryPathway,
}

// Prefix returns the prefix of a CURIE. A string without a colon is treated
// as a bare prefix.
func Prefix(curie string) string {
	prefix, _, _ := strings.Cut(curie, ":")
	return prefix
}

// GuessCategory guesses the Biolink category of a CURIE (or bare prefix) from
// its prefix, falling back to biolink:NamedThing.
func GuessCategory(curie string) string {
	if cat, ok := prefixCategories[strings.ToLower(Prefix(curie))]; ok {
		return cat
	}
	return CategoryNamedThing
}

// CollapseUniProtCURIE drops the isoform suffix from a UniProtKB CURIE, so
// UniProtKB:P63151-1 becomes UniProtKB:P63151. Other CURIEs are returned as is.
func CollapseUniProtCURIE(curie string) string {
	prefix, local, ok := strings.Cut(curie, ":")
	if !ok || !strings.EqualFold(prefix, "uniprotkb") {
		return curie
	}
	if i := strings.LastIndexByte(local, '-'); i > 0 {
		local = local[:i]
	}
	return prefix + ":" + local
}

// EdgeID derives a stable edge identifier from the edge's triple.
func EdgeID(subject, predicate, object string) string {
	return "urn:uuid:" + uuid.NewSHA1(uuid.NameSpaceURL, []byte(subject+"\x1f"+predicate+"\x1f"+object)).String()
}
