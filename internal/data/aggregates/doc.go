// Package aggregates holds the transaction runner shared by the services and
// the mapping from driver errors onto the domain error taxonomy.
package aggregates
