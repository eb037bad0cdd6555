package positions

import (
	"context"

	"spot_bot/internal/models"
)

// LoadStatus: в каком состоянии нашли хранилище при загрузке.
type LoadStatus int

const (
	StatusValid   LoadStatus = iota
	StatusEmpty              // ничего не сохранено
	StatusCorrupt            // не читается или не парсится; работаем с пустым набором
)

func (s LoadStatus) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusEmpty:
		return "empty"
	case StatusCorrupt:
		return "corrupt"
	}
	return "unknown"
}

// LoadResult: Load никогда не возвращает ошибку: проблема чтения описывается Status/Cause.
type LoadResult struct {
	Positions models.Positions
	Status    LoadStatus
	Cause     error
	// MovedTo: куда отложен битый файл (только файловое хранилище).
	MovedTo string
}

// Store: единственный источник правды об открытых позициях между циклами.
type Store interface {
	Load(ctx context.Context) LoadResult
	// Save перезаписывает хранилище целиком. Ошибки записи пробрасываются.
	Save(ctx context.Context, p models.Positions) error
}

func validate(p models.Positions) error {
	for sym, pos := range p {
		if sym == "" || pos.BuyPrice <= 0 || pos.Amount <= 0 {
			return &InvalidPositionError{Symbol: sym, Position: pos}
		}
	}
	return nil
}

type InvalidPositionError struct {
	Symbol   string
	Position models.Position
}

func (e *InvalidPositionError) Error() string {
	return "invalid position " + e.Symbol + ": buy_price and amount must be positive"
}
