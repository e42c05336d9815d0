// Package azure talks to the two Azure services subgen depends on: the
// batch speech-to-text REST API (v3.2) and blob storage, which stages
// audio for the speech service to read.
package azure
