package club

const (
	msgGreeting = "Приветствуем!\n\n"
	msgContact  = "Для выяснения подробностей свяжитесь с пользователем @clubadm на Хабре - возможно, ещё не всё потеряно!"

	msgShippedNotify  = `Анонимный Дед Мороз отправил подарок! Когда получите, не забудьте отметить это в <a href="%s">профиле</a>.`
	msgShippedSubject = "Вам отправили подарок!"
	msgShippedBody    = "Привет, внук!\n\n" +
		"Похоже, ты хорошо вёл себя в этом году - Анонимный Дед Мороз отправил тебе подарок!\n\n" +
		"Пожалуйста, не забудь отметить в профиле (%s), когда получишь подарок.\n\n" +
		"Всего наилучшего в новом году!"

	msgDeliveredNotify  = "Ваш АПП отметил в профиле, что подарок получен!"
	msgDeliveredSubject = "ваш получатель отметил, что получил подарок!"
	msgDeliveredBody    = "Привет, Анонимный Дед Мороз!\n\n" +
		"Новогоднее чудо случилось: ваш Анонимный Получатель Подарка отметил, что получил подарок!\n\n" +
		"Поздравляем и желаем всего наилучшего в новом году!"

	msgLateSubject              = "запоздавшее новогоднее волшебство"
	msgLateShippedSanta         = "Лучше поздно, чем никогда - спасибо, что отправили подарок!"
	msgLateShippedReceiver      = "Лучше поздно, чем никогда: администраторы сервиса получили подтверждение отправки вам подарка, ожидайте!"
	msgLateDeliveredReceiver    = "Вы забыли отметить получение подарка, поэтому администраторы сервиса сделали это за вас."
	msgLateDeliveredSantaNotify = "Ваш получатель подарка куда-то пропал или забыл отметить, что получил подарок. " +
		"Поэтому подтверждаем получение подарка за него. Спасибо за участие!"
	msgLateDeliveredSantaBody = "Привет, Анонимный Дед Мороз!\n\n" +
		"Ваш получатель подарка куда-то пропал или забыл отметить, что получил подарок. " +
		"Поэтому подтверждаем получение подарка за него.\n\nСпасибо за участие!"

	msgNewReceiverNotify  = `Замена получателя подарка! Посмотреть адрес нового получателя можно в <a href="%s">профиле</a>.`
	msgNewReceiverSubject = "замена получателя подарка"
	msgNewReceiverBody    = msgGreeting + "Так получилось, что ваш Анонимный Получатель Подарка был заменён. " + msgContact
	msgNewSantaNotify     = "Замена Анонимного Деда Мороза!"
	msgNewSantaSubject    = "замена Деда Мороза"
	msgNewSantaBody       = msgGreeting + "Так получилось, что ваш Анонимный Дед Мороз был заменен (на не менее анонимного). " + msgContact

	msgKickedNotify  = "Кто-то из организаторов отменил ваше участие в АДМ-%d."
	msgKickedSubject = "ваше участие отменено"
	msgKickedBody    = msgGreeting + "Ваше участие в АДМ-%d было отменено. " + msgContact

	msgBannedNotify  = "Ваш аккаунт заблокирован. Для выяснения причин свяжитесь с пользователем @clubadm."
	msgBannedSubject = "Ваш аккаунт заблокирован"
	msgBannedBody    = "Приветствуем! Ваш аккаунт в Клубе Анонимных Дедов Морозов был заблокирован.\n\n" + msgContact

	msgUnbannedNotify  = "Ваш аккаунт разблокирован. Желаем вам счастливого Нового Года и Рождества! :-)"
	msgUnbannedSubject = "Ваш аккаунт разблокирован"
	msgUnbannedBody    = msgGreeting + "Ваш аккаунт в Клубе Анонимных Дедов Морозов был разблокирован.\n\n" +
		"Поздравляем и желаем всего наилучшего в новом году!"
)
