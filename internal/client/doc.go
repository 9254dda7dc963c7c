// Package client submits Forms modules to a running gateway and reads its
// diagnostics endpoints. Transport failures are retried; gateway answers,
// including errors, are returned to the caller unchanged.
package client
