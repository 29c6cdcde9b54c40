package matching

const (
	matchedNotification = `Вам назначен получатель подарка. Посмотреть адрес можно в <a href="%s">профиле</a>.`
	matchedEmailSubject = "пора отправлять подарок"
	matchedEmailBody    = "Привет, Анонимный Дед Мороз!\n\n" +
		"Вам назначен получатель подарка. Посмотреть адрес внука можно в профиле: %s"
)
