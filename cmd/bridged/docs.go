package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           bridged control API
// @version         1.0
// @description     Local control surface bridging the desktop shell to the assistant backend.
//
// @contact.name   bridged maintainers
// @contact.url    https://github.com/your-org/bridged
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
