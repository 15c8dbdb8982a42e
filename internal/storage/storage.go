package storage

// Фиксированные ключи блобов каталога
const (
	KeyEndpoints = "endpoints"
	KeyProjects  = "projects"
)

// Storage хранит непрозрачные JSON-блобы по строковому ключу
type Storage interface {
	// Load возвращает блоб; ok == false если ключ ещё не сохранялся
	Load(key string) (value []byte, ok bool, err error)
	// Save перезаписывает блоб целиком
	Save(key string, value []byte) error
	Close() error
}
