// Package value defines the tagged value union stored in the keyspace.
//
// A Value holds exactly one of five variants: String, Integer, List, Set
// or Hash. Operations that expect a different variant than the one stored
// fail explicitly instead of coercing; callers switch on Kind and handle
// every case.
package value
