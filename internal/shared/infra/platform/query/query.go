package query

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// OffsetPagination para paginación clásica
type OffsetPagination struct {
	Limit  int
	Offset int
}

// Normalize acota Limit a (0, MaxLimit] y evita offsets negativos.
func (p OffsetPagination) Normalize() OffsetPagination {
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Pagination es cualquier estrategia de paginación que entiendan los repositorios.
type Pagination interface{}

// Sort indica campo y dirección.
type Sort struct {
	Field string // ej. "created_at", "status"
	Desc  bool
}

// Column devuelve la columna a usar en ORDER BY: sólo se aceptan las de allowed,
// el resto cae a fallback. Nunca se interpola en SQL un campo que venga de fuera.
func (s Sort) Column(allowed map[string]string, fallback string) string {
	if col, ok := allowed[s.Field]; ok {
		return col
	}
	return fallback
}

func (s Sort) Direction() string {
	if s.Desc {
		return "DESC"
	}
	return "ASC"
}
