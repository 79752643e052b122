// Package internaldefs holds the metric names and bucket layout shared by the
// Prometheus and OTel exporters.
//
// Renaming a definition here renames it in every exporter.
package internaldefs
