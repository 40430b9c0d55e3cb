// Package report summarises the quality of estimated normals.
//
// It computes deviation angles against a reference direction and renders
// them as a PNG histogram (gonum/plot) or the cloud itself as an HTML
// scatter coloured by normal direction (go-echarts).
package report
