// Package aggregates defines the domain error taxonomy. Codes are stable and
// map onto HTTP statuses at the edge.
package aggregates
