// Package core contains the social login domain: provider configuration,
// the provider module contract, the per-provider attempt orchestrator and
// the result reporter that normalizes vendor profiles. Provider adapters
// depend on this package; core must not depend on any provider or
// transport adapter.
package core
