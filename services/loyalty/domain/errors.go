package domain

import "errors"

// Доменные ошибки программы лояльности.
var (
	// ErrAccountNotFound — счёт лояльности не найден.
	ErrAccountNotFound = errors.New("счёт лояльности не найден")

	// ErrInsufficientBalance — на счёте недостаточно баллов для списания.
	ErrInsufficientBalance = errors.New("недостаточно баллов на счёте")
)

// CodeInsufficientBalance — машиночитаемый код конфликта списания.
const CodeInsufficientBalance = "LOYALTY_INSUFFICIENT_BALANCE"
