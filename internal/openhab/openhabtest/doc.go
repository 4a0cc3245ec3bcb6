// Package openhabtest provides fakes for exercising controllers and the
// nodes built on them without a server or real time: an Executor with a
// manual clock, a scripted Requester and a StreamDialer whose streams are
// driven by the test.
package openhabtest
