// Package domain contains the conversion request and result types and the two
// error kinds the service reports. It has no HTTP, Chrome or rasterizer
// dependencies.
package domain
