// Package prompt renders geological records into the text the narrative model continues.
package prompt

import (
	"strconv"
	"strings"

	"github.com/UnknownOlympus/magma/internal/models"
)

const (
	unknown = "Unknown"

	noUnitData = "No specific geological unit data available.\n"

	analysisRequest = "\n\nAs a geology expert, please provide a detailed analysis of this location, including:\n" +
		"1. Regional geological context\n" +
		"2. Rock formations and their relationships\n" +
		"3. Geological history and major events\n" +
		"4. Significant features and structures\n" +
		"5. Economic or scientific importance\n" +
		"\n" +
		"Analysis:"
)

// Build returns the prompt for a location and its geological units. Units are listed in the
// order given and the output depends only on the inputs.
func Build(location string, dataset models.Dataset) string {
	var b strings.Builder

	b.WriteString("Location: ")
	b.WriteString(location)
	b.WriteString("\n\nGeological Data:\n")

	if len(dataset) == 0 {
		b.WriteString(noUnitData)
	}
	for _, unit := range dataset {
		writeUnit(&b, unit)
	}

	b.WriteString(analysisRequest)

	return b.String()
}

func writeUnit(b *strings.Builder, unit models.GeologicalUnit) {
	b.WriteString("\n- Formation: ")
	b.WriteString(orUnknown(unit.Name))
	b.WriteString("\n- Age: ")
	b.WriteString(age(unit.BottomAge))
	b.WriteString(" to ")
	b.WriteString(age(unit.TopAge))
	b.WriteString(" million years\n- Rock Types: ")
	b.WriteString(textOrUnknown(unit.Lithology))
	b.WriteString("\n- Environment: ")
	b.WriteString(textOrUnknown(unit.Environment))
	b.WriteString("\n")
}

func orUnknown(s *string) string {
	if s == nil {
		return unknown
	}

	return *s
}

func textOrUnknown(s string) string {
	if s == "" {
		return unknown
	}

	return s
}

func age(ma *float64) string {
	if ma == nil {
		return unknown
	}

	return strconv.FormatFloat(*ma, 'f', -1, 64)
}
