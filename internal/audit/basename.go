package audit

import "strings"

// formulation suffixes stripped when comparing drug names across naming
// variants. Ordered so the longest applicable suffix wins on first match.
var formulationSuffixes = []string{
	"缓释胶囊",
	"缓释片",
	"肠溶片",
	"注射液",
	"口服液",
	"颗粒",
	"胶囊",
	"片",
}

// BaseDrugName strips a known formulation suffix from a drug name, e.g.
// "阿司匹林肠溶片" → "阿司匹林". Names without a recognized suffix are
// returned unchanged.
func BaseDrugName(name string) string {
	for _, suffix := range formulationSuffixes {
		if strings.HasSuffix(name, suffix) {
			return strings.TrimSuffix(name, suffix)
		}
	}
	return name
}
