package domain

// domain package contains the Domain Models and Interfaces for the gallery.
//
// `domain/ENTITY.go` has high-level entities (Domain Model types).
// For example, `domain/asset.go` contains the `Asset` entity.
//
// `domain/ENTITY` directory contains the "phisical" representation of the domain entities:
// the mirror database (`domain/ENTITY/db`) and the external catalog (`domain/ENTITY/catalog`).
//
// `domain/ENTITY/interface.go` exposes the client interface to handle the domain entity in DB/catalog.
//
// # Entities
//
// - `asset`: an image hosted by the external catalog (Contentful), mirrored into the local database.
// The mirror holds a locally-owned "week" label which does not exist in the catalog.
// The mirror is brought into agreement with the catalog by reconciliation (see `pkg/gallery`):
// assets gone from the catalog are deleted, new ones are inserted without week,
// and assets known on both sides are never touched, so their week survives re-syncs.
