// Package query defines the statement IR of the storage contract.
//
// The revision engine never builds SQL strings. It describes row reads and
// writes as Select, Insert, Update, Delete and Max statements over named
// tables and columns, filtered by sealed predicates. Package querysql
// compiles them into parameterized SQL for a concrete dialect.
package query
