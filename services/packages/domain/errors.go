package domain

import "errors"

// Доменные ошибки пакетов услуг.
var (
	// ErrPackageNotFound — пакет не найден.
	ErrPackageNotFound = errors.New("пакет услуг не найден")

	// ErrInsufficientUnits — в пакете недостаточно единиц для списания.
	ErrInsufficientUnits = errors.New("недостаточно единиц в пакете")
)

// CodeInsufficientUnits — машиночитаемый код конфликта списания.
const CodeInsufficientUnits = "PACKAGE_INSUFFICIENT_UNITS"
