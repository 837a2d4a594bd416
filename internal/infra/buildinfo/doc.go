// Package buildinfo exposes the version of the running binary.
//
// Values are injected at build time via ldflags:
//
//	go build -ldflags "-X github.com/yndnr/respkv/internal/infra/buildinfo.Version=v1.0.0 \
//	  -X github.com/yndnr/respkv/internal/infra/buildinfo.Commit=$(git rev-parse --short HEAD)"
//
// Without ldflags the commit and build time fall back to the VCS stamp Go
// embeds in module builds.
package buildinfo
