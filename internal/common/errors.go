// Package common - errors.go определяет ошибки, общие для всех модулей.
// Обработчики (HTTP, Telegram) различают их через errors.Is
// и отдают клиенту понятный ответ.
package common

import (
	"errors"
	"fmt"
)

// Ошибки обработки игровых событий
var (
	// ErrInvalidEvent - событие не прошло валидацию (пустой player_id, event_id и т.п.).
	// Повтор не поможет, вызывающий должен исправить данные.
	ErrInvalidEvent = errors.New("некорректное игровое событие")
	// ErrInvalidPayload - в event_data нет обязательных полей или они неверного типа.
	// Оборачивает ErrInvalidEvent, поэтому errors.Is(err, ErrInvalidEvent) == true.
	ErrInvalidPayload = fmt.Errorf("некорректные данные события: %w", ErrInvalidEvent)
	// ErrUnknownGame - неподдерживаемый тип игры
	ErrUnknownGame = errors.New("неизвестный тип игры")
	// ErrStorageFailure - ошибка хранилища (БД недоступна, таймаут, отмена контекста).
	// Транспорт может повторить запрос.
	ErrStorageFailure = errors.New("ошибка хранилища наград")
)

// Ошибки выплат
var (
	// ErrInvalidWallet - адрес кошелька не является base58-ключом на 32 байта
	ErrInvalidWallet = errors.New("некорректный адрес кошелька")
	// ErrWalletNotLinked - игрок не привязал кошелёк
	ErrWalletNotLinked = errors.New("кошелёк не привязан")
	// ErrAmountOverflow - сумма выплаты не помещается в uint64
	ErrAmountOverflow = errors.New("переполнение суммы выплаты")
	// ErrSettlementQueueFull - очередь выплат переполнена
	ErrSettlementQueueFull = errors.New("очередь выплат переполнена")
	// ErrSettlementStopped - диспетчер выплат остановлен
	ErrSettlementStopped = errors.New("диспетчер выплат остановлен")
)

// Ошибки участников
var (
	// ErrUserNotFound - пользователь не найден в базе
	ErrUserNotFound = errors.New("пользователь не найден")
)

// Ошибки админки
var (
	// ErrNotAdmin - пользователь не является администратором
	ErrNotAdmin = errors.New("у вас нет прав администратора")
	// ErrWrongPassword - неверный пароль
	ErrWrongPassword = errors.New("неверный пароль")
	// ErrTooManyAttempts - слишком много неудачных попыток входа
	ErrTooManyAttempts = errors.New("слишком много попыток, подождите 1 час")
	// ErrSessionExpired - сессия истекла
	ErrSessionExpired = errors.New("сессия истекла, авторизуйтесь заново")
)
