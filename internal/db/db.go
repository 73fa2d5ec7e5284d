package db

// DB is a generic database port so repositories do not depend on how the
// connection was opened.
type DB interface {
	Conn() any
}
