// Package enrichment defines the shared lead types and runs the
// search-then-enrich pipeline: places are collected from the provider,
// each business website is visited in order, and contact channels are
// extracted from the returned markup.
package enrichment
