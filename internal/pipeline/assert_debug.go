//go:build !production

package pipeline

// verifyAttribution enables the lossless aggregation check.
const verifyAttribution = true
