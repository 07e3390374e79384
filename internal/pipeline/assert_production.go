//go:build production

package pipeline

const verifyAttribution = false
