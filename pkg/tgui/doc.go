// Package tgui renders operator replies for Telegram HTML parse mode.
// Every builder escapes its input; values of type H are already safe.
package tgui
