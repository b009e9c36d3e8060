// Package index lists the catalogs visible through the configured search
// directories and the entries they define. A listing can be cached as JSON
// and is reused while no search directory has changed.
package index
