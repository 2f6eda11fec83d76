// Package domain holds the error vocabulary shared by every cosched layer.
//
// It has no dependencies on infrastructure (sockets, file system, logging)
// so that adapters and the application layer can both refer to it.
package domain
