// Package config defines the format-agnostic experiment model: the
// experiment axes, the job sections with their dependencies, the platforms
// jobs run on and the optional wrapper policy. It also defines the Loader
// interface implemented by format-specific loaders.
//
// The `config.Model` is the single source of truth for job generation.
// Concrete loaders, such as the HCL one, live in separate packages.
package config
