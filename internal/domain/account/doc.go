// Package account содержит доменную модель аккаунта Alpha Wulf.
//
// Аккаунт создаётся один раз на каждый Telegram ID при первом успешном входе
// через Mini App и никогда не удаляется ядром. Пакет определяет:
//
//   - Сущность Account и фабрику NewAccount с валидацией
//   - Value Object TelegramID
//   - Identity - проверенная личность, извлечённая из initData
//   - Интерфейс Repository, реализуемый в infrastructure/persistence
//
// Уникальность TelegramID обеспечивается хранилищем (уникальный индекс),
// а не проверкой "прочитал-потом-вставил": при гонке двух первых входов
// Repository.Create возвращает ErrAccountAlreadyExists, и вызывающая сторона
// перечитывает победившую запись.
package account
