// Package stages turns a target into a plan and executes the plan's stages
// in their fixed order: provision, sources, build, assemble.
package stages
