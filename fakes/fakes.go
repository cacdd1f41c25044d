package fakes

//go:generate go run github.com/maxbrunsfeld/counterfeiter/v6 -generate

//counterfeiter:generate -o ./fake_transport.go ../monitor/mailer Transport
//counterfeiter:generate -o ./fake_sampler.go ../monitor/sampler Sampler
